// Command scmpbuild makes libseccomp available for linking, from the
// system or built from source.
package main

import "github.com/goplus/scmpbuild/cmd/scmpbuild/internal"

func main() {
	internal.Execute()
}
