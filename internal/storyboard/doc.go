// Package storyboard renders segmented scenes as a printable PDF: one frame
// per scene holding its reference image or description, followed by the
// scene's dialogue, sound cues and camera directions.
//
// Core PDF fonts only cover Windows-1252, so text is folded before it is
// written: accented letters outside that code page lose their marks and
// anything else becomes "?".
package storyboard
