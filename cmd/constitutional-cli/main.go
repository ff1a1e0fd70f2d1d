// constitutional is the command-line companion to the constitutional server.
//
// It screens text through the same engine the server runs, prints the
// effective configuration, and maintains the audit store.
//
// Usage:
//
//	# Screen a model response
//	constitutional screen --query "How do I reset my password?" --output "Visit settings."
//
//	# Screen stdin in strict mode and exit non-zero on rejection
//	cat answer.txt | constitutional screen --strict --fail
//
//	# Show the configuration after file and environment layering
//	constitutional config --config constitutional.yaml
//
//	# Delete audit records older than the retention window
//	constitutional audit purge
//
//	# Summarize the last week of audit records
//	constitutional audit stats --since 168h
package main

func main() {
	Execute()
}
