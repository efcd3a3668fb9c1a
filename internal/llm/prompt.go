package llm

import (
	"strings"

	"github.com/joseph-ayodele/lease-abstractor/constants"
)

// BaseInstruction carries the reconciliation and citation rules shared by
// every extraction request.
func BaseInstruction() string {
	parts := []string{
		"You are a commercial lease abstraction analyst. The content contains one or more documents: the original lease followed by its amendments.",
		"Each document starts with a header line \"Document N: <name>\". Pages are separated by \"--- PAGE BREAK ---\" and documents by \"=== DOCUMENT BOUNDARY ===\". Count pages from 1 within each document.",
		"The documents are in chronological order. When a later document explicitly modifies, replaces or deletes a provision, the later version supersedes the earlier one.",
		"Provisions of earlier documents that no later document modifies remain in force. Keep them; never drop a clause just because a later document is silent about it.",
		"Every extracted fact must cite its source as document name, section and page, e.g. \"Amendment 2.pdf, Section 4.1, p. 3\", wherever the schema offers a place for it.",
		"Search all documents exhaustively before giving up on a field. Only then use the exact value \"" + constants.NotProvided + "\".",
		"Return ONLY JSON that strictly conforms to the requested response schema. Follow the formatting conventions in each field description for dates, currency and numbers.",
		"Never output null and never invent values that do not appear in the documents.",
	}
	return strings.Join(parts, "\n")
}

// UnitInstruction restricts a request to one slice of the record.
func UnitInstruction(label, key string, catchAll bool) string {
	var b strings.Builder
	b.WriteString("For this request extract ONLY \"")
	b.WriteString(label)
	b.WriteString("\". Respond with a single JSON object whose only key is \"")
	b.WriteString(key)
	b.WriteString("\". Do not include any other sections or fields.")
	if catchAll {
		b.WriteString(" Capture material provisions that do not belong to any named clause category. If there are none, return an empty list.")
	}
	return b.String()
}

// SystemInstruction composes the full instruction for one extraction unit.
func SystemInstruction(label, key string, catchAll bool) string {
	return BaseInstruction() + "\n\n" + UnitInstruction(label, key, catchAll)
}

// QAInstruction is the system instruction for free-form questions.
func QAInstruction() string {
	return strings.Join([]string{
		"You answer questions about a commercial lease and its amendments using only the documents provided.",
		"The documents are in chronological order; later explicit modifications supersede earlier provisions.",
		"Cite the document name, section and page for every statement.",
		"If the documents do not answer the question, say so plainly.",
	}, "\n")
}

// QAContent packages the document text and the question for one stateless turn.
func QAContent(text, question string) string {
	var b strings.Builder
	b.WriteString("DOCUMENTS:\n")
	b.WriteString(text)
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}
