// dashctl is the terminal client for the COVID dashboard session.
package main

import "covid-dashboard/platform/internal/cli"

func main() {
	cli.Execute()
}
