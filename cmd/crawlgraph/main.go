// Command crawlgraph runs the distributed crawler and search engine.
package main

import "github.com/crawlgraph/crawlgraph/internal/cli"

func main() {
	cli.Execute()
}
