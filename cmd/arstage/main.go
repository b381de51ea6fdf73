// Command arstage runs the AR session controller.
package main

func main() {
	Execute()
}
