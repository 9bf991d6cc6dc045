// Package tui is a terminal front end for the command palette.
//
// A Palette draws the query line, a status line and the filtered results on
// a tcell screen. Typing edits the query, Up and Down move the cursor and
// Enter runs the selected command. With an empty query, results are grouped
// under their section headings.
package tui
