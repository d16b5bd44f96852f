package main

import "csatnotes/internal/app"

func main() {
	app.Main()
}
