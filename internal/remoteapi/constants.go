// Package remoteapi implements the Remote Submission Client (spec §4.8):
// the handful of bilibili creator-center endpoints a finished task's parts
// are submitted through, plus the collection and audit lookups the
// Reconciliation Loop and Upload Queue depend on.
package remoteapi

// MaxPartsPerSubmission is the hard cap bilibili's add/edit endpoints place
// on how many video parts a single request may carry. A task with more
// parts than this is submitted in successive batches (see Submit).
const MaxPartsPerSubmission = 100

const (
	createURL           = "https://member.bilibili.com/x/vu/web/add/v3"
	editURL             = "https://member.bilibili.com/x/vu/web/edit"
	addToCollectionURL  = "https://member.bilibili.com/x2/creative/web/season/section/episodes/add"
	switchCollectionURL = "https://member.bilibili.com/x2/creative/web/season/switch"
	listCollectionsURL  = "https://member.bilibili.com/x2/creative/web/seasons"
	auditPageURL        = "https://member.bilibili.com/x/web/archives"
	viewByBVIDURL       = "https://api.bilibili.com/x/web-interface/view"
)

// auditStatus is the fixed status filter the audit page is queried with;
// spec §4.9 only cares about submissions still awaiting or mid review.
const auditStatus = "is_pubing,not_pubed"

const auditPageSize = 20
