/*
Package compiler builds service binaries for acceptance tests.

Binaries are always written to a temporary folder, removed by Cleanup. Use
Parallel to compile a suite's worth of binaries concurrently from TestMain,
then hand each Work's Result path to a supervisor to run it.
*/
package compiler
