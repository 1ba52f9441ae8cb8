package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Printf("probe: %v\n", os.Args[1:])
}
