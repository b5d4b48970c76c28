// Package qa assembles the quality assurance report of a subject run.
//
// Tasks that implement task.QASupplier return described review images after a
// successful Implement. The report collects them into a Markdown document with
// YAML frontmatter, renders it to HTML and checks that every referenced image
// exists. The Markdown is fingerprinted so an unchanged report is not rewritten.
package qa
