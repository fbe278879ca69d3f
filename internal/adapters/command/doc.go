// Package command implements a case executor that runs an external program
// for every case.
//
// The case is written to the program's stdin as JSON and the program must
// print a JSON object (the result) on stdout and exit with status zero.
// Stderr lines are forwarded to the logger. The program is typically a
// browser-automation script driving a third-party web form.
package command
