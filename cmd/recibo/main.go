package main

import (
	"github.com/MeKo-Tech/recibo/cmd/recibo/cmd"
)

func main() {
	cmd.Execute()
}
