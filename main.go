/*
Copyright © 2024 Dean
*/
package main

import "github.com/vibeee34/chatbot-gemini/cmd"

func main() {
	cmd.Execute()
}
