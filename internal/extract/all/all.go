// Package all registers every platform extractor.
//
// Import it for its side effects wherever snapshots of any platform may
// show up:
//
//	import _ "cpstats/internal/extract/all"
package all

import (
	_ "cpstats/internal/extract/codechef"
	_ "cpstats/internal/extract/codeforces"
	_ "cpstats/internal/extract/geeksforgeeks"
	_ "cpstats/internal/extract/leetcode"
)
