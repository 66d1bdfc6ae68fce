// Command coderag indexes a workspace for retrieval-augmented answers and
// applies model-proposed edits through the diff engine.
package main

func main() {
	execute()
}
