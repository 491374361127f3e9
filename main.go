// The main package for the imagecrawler executable.
package main

import (
	"github.com/JakeFAU/imagecrawler/cmd"
)

func main() {
	cmd.Execute()
}
