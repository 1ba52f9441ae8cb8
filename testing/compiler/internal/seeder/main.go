package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Printf("seeder: %v\n", os.Args[1:])
}
