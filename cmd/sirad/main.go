// Command sirad builds de-identified research data from administrative
// datasets.
package main

import (
	"os"

	"github.com/roach88/sirad/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
