// Package viz renders a running simulation in the terminal.
//
// Model is a bubbletea program that advances a time-stepping simulation a
// few steps per frame and draws it on a braille Canvas: Lagrangian bodies
// as balls above the floor, first order systems as a phase portrait. The
// side panel shows the Newton status, the active index sets and an energy
// history plotted with asciigraph.
package viz
