// Package scraper extracts display names from the game-history site.
//
// A lookup is two requests over the shared session: the per-user history
// page, scanned for the first row of the tracked game, and the profile
// fragment that row links to, whose first bold element holds the name.
// Every lookup failure degrades to "no username"; nothing here returns an
// error to the pipeline.
package scraper
