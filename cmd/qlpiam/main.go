package main

import "github.com/quicklinkpay/admin-iam/cmd/qlpiam/cmd"

func main() {
	cmd.Execute()
}
