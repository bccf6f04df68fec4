// Command ops runs maintenance tasks against the EcoStreak database.
package main

import "ecoStreakAPI/internal/cli"

func main() {
	cli.Execute()
}
