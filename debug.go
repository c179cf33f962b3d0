//go:build lasvm_debug

package lasvm

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
