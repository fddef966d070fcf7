package main

import (
	_ "time/tzdata"

	"github.com/sdis/opsdash/internal/app"
)

func main() {
	app.Execute()
}
