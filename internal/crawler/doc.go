// Package crawler implements the crawl coordination engine: the content and
// picture frontiers, the content crawl loop, the image harvest loop and the
// coordinator that runs both until the frontiers are exhausted.
package crawler
