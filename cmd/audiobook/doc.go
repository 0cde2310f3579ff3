// Command audiobook drives the station pipeline that develops an audio drama
// from a premise to a checked episode outline.
//
// Every station reads its dependencies from the session store, prompts the
// LLM and writes its output back under the session's keys, so a session can
// be resumed, partially re-run or inspected at any point:
//
//	audiobook run --input premise="Two guards rob their own bank"
//	audiobook run sess_20260101T120000 --start-at 4.5
//	audiobook rerun sess_20260101T120000 3
//	audiobook sessions
//	audiobook show sess_20260101T120000 4
package main
