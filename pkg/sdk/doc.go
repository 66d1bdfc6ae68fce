// Package coderag provides a Go client for the coderag HTTP API.
//
// The client talks to a running "coderag serve" instance: it triggers
// indexing, asks questions over the retrieved code and applies edits.
//
//	client, _ := coderag.New("http://localhost:8080", coderag.WithAPIKey(key))
//	_, _ = client.IndexWorkspace(ctx)
//	ans, _ := client.Query(ctx, coderag.QueryRequest{Query: "where is auth handled?"})
//	fmt.Println(ans.Answer)
//
// Streaming answers arrive chunk by chunk:
//
//	ans, err := client.QueryStream(ctx, req, func(s string) { fmt.Print(s) })
package coderag
