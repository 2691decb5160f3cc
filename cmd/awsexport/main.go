// awsexport - AWS infrastructure snapshot exporter
// Query. Write. Done.
package main

func main() {
	Execute()
}
