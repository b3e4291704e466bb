// dlepctl is the command-line client for the godlep daemon's
// JSON/HTTP session introspection API.
package main

import "github.com/dantte-lp/godlep/cmd/dlepctl/commands"

func main() {
	commands.Execute()
}
