// Command sonarboard is the SonarQube dashboard CLI and backend.
package main

import "github.com/derickschaefer/sonarboard/cmd"

func main() {
	cmd.Execute()
}
