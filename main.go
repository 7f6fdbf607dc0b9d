/*
Copyright © 2023 OpenTDF opentdf@virtru.com
*/
package main

import "github.com/opentdf/drmpolicy/cmd"

func main() {
	cmd.Execute()
}
