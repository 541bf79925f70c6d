package main

import (
	"github.com/bpmigrate/bpmigrate/cmd"
)

func main() {
	cmd.LoadDotenv()
	cmd.Execute()
}
