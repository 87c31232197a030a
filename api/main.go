package main

import (
	"github.com/floorlinehq/floorline/api/cmd/floorline"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	floorline.Execute()
}
