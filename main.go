package main

import "github.com/Xueheng-Li/cc-log-page/internal/cmd"

func main() {
	cmd.Execute()
}
