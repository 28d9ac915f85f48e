// Package report renders one chart page per indicator, with dashed markers
// at the years of retained disaster events, into a multi-page PDF.
//
// [Generator] decides what goes on each page and records a [PageOutcome] per
// indicator. A [Surface] draws pages; [PDFSurface] is the gonum/plot backed
// implementation. A page that cannot be drawn is recorded as failed and the
// remaining pages are still produced.
package report
