// Package e2e provides end-to-end tests that ingest a corpus of real files and
// query it through the gated retriever.
package e2e

import "fmt"

// Document is a corpus entry written to disk as one file.
type Document struct {
	Name    string
	Title   string
	Content string
}

// Text is what the file holds: the title, a blank line and the content.
func (d Document) Text() string {
	return d.Title + "\n\n" + d.Content
}

var topics = []struct {
	title   string
	content string
}{
	{"Onboarding Checklist", "New engineers request laptop access on day one and pair with a buddy during the first sprint."},
	{"Expense Policy", "Meals during travel are reimbursed up to a daily cap and receipts are uploaded within thirty days."},
	{"Incident Runbook", "Page the on-call engineer, open an incident channel and post status updates every fifteen minutes."},
	{"Backup Schedule", "Database snapshots run nightly and are retained for five weeks in a separate region."},
	{"Release Process", "Releases are cut from main on Tuesdays and promoted to production after a canary soak."},
	{"Password Rotation", "Service credentials rotate every ninety days through the secrets manager."},
	{"Office Hours", "The platform team holds open office hours on Thursday afternoons for architecture questions."},
	{"Code Review Guide", "Reviewers approve within one working day and authors keep pull requests under four hundred lines."},
	{"Parental Leave", "Employees receive sixteen weeks of paid parental leave that can be split into two blocks."},
	{"Vendor Security", "Every new vendor completes a security questionnaire before a contract is signed."},
	{"Data Retention", "Customer logs are deleted after eighteen months unless a legal hold applies."},
	{"Laptop Refresh", "Laptops are replaced every three years and old devices are wiped before recycling."},
	{"Travel Booking", "Flights over six hours may be booked in premium economy with manager approval."},
	{"Feature Flags", "Flags older than two quarters are removed and the default path becomes permanent."},
	{"Dependency Updates", "A bot opens weekly pull requests for minor upgrades and a human merges major ones."},
	{"Support Escalation", "Tier one escalates to engineering when a bug blocks a paying customer for over four hours."},
	{"Access Reviews", "Managers confirm group memberships for their reports at the end of every quarter."},
	{"Remote Work", "Staff may work from another country for up to four weeks per year after notifying payroll."},
	{"Meeting Norms", "Recurring meetings need an agenda and are cancelled when the agenda is empty."},
	{"Cloud Budget", "Teams receive a monthly cloud budget and alerts fire at eighty percent of spend."},
	{"Hiring Loop", "Candidates complete a take-home exercise followed by three interviews on the same day."},
	{"Performance Reviews", "Reviews happen twice a year and combine peer feedback with a self assessment."},
	{"Disaster Recovery", "A full region failover is rehearsed every six months and the results are shared."},
	{"Open Source Policy", "Contributions to outside projects need a quick license check by the legal team."},
}

// BuildCorpus returns n documents with unique titles and content.
// Topics repeat past len(topics) with a numbered suffix so every text stays unique.
func BuildCorpus(n int) []Document {
	out := make([]Document, 0, n)
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		d := Document{
			Name:    fmt.Sprintf("doc-%03d", i+1),
			Title:   t.title,
			Content: t.content,
		}
		if i >= len(topics) {
			d.Title = fmt.Sprintf("%s (revision %d)", t.title, i/len(topics)+1)
		}
		out = append(out, d)
	}
	return out
}
