// Package docx renders generated text into Word documents using unioffice.
package docx
