/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/actionkv/cmd/actionkv/cmd"

func main() {
	cmd.Execute()
}
