package main

import "github.com/naka-gawa/bitbucket-pipeline-report/cmd"

func main() {
	cmd.Execute()
}
