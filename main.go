// The main package for the reviewcrawler executable.
package main

import "github.com/vielabs/tiki-review-crawler/cmd"

func main() {
	cmd.Execute()
}
