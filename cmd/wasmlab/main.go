// Command wasmlab compiles guest scripts and runs them in the local sandbox.
package main

func main() {
	Execute()
}
