package permissions

// Permission names the engine itself consults.
const (
	ViewIssues          = "view_issues"
	AddIssues           = "add_issues"
	EditIssues          = "edit_issues"
	DeleteIssues        = "delete_issues"
	AddIssueNotes       = "add_issue_notes"
	ViewPrivateNotes    = "view_private_notes"
	SetNotesPrivate     = "set_notes_private"
	SetIssuesPrivate    = "set_issues_private"
	SetOwnIssuesPrivate = "set_own_issues_private"
	ManageMembers       = "manage_members"
	AddProject          = "add_project"
	EditProject         = "edit_project"
	CloseProject        = "close_project"
	AddSubprojects      = "add_subprojects"
	ManageWorkflow      = "manage_workflow"
	LogTime             = "log_time"
	ViewTimeEntries     = "view_time_entries"
	ViewDocuments       = "view_documents"
	ViewWikiPages       = "view_wiki_pages"
	ViewFiles           = "view_files"
)

func init() {
	perms := []*Permission{
		{ID: AddProject, Module: "project", Description: "Create projects"},
		{ID: EditProject, Module: "project", Description: "Edit project settings"},
		{ID: CloseProject, Module: "project", Description: "Close and reopen projects"},
		{ID: AddSubprojects, Module: "project", DependsOn: []string{EditProject}, Description: "Create subprojects"},
		{ID: ManageMembers, Module: "project", Description: "Add, update and remove project members"},
		{ID: ManageWorkflow, Module: "project", Description: "Edit workflow transition rules"},

		{ID: ViewIssues, Module: "issue_tracking", ReadOnly: true, Description: "View issues"},
		{ID: AddIssues, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Create issues"},
		{ID: EditIssues, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Edit issues"},
		{ID: DeleteIssues, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Delete issues"},
		{ID: AddIssueNotes, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Add notes to issues"},
		{ID: ViewPrivateNotes, Module: "issue_tracking", ReadOnly: true, DependsOn: []string{ViewIssues}, Description: "View private issues"},
		{ID: SetNotesPrivate, Module: "issue_tracking", DependsOn: []string{AddIssueNotes}, Description: "Mark notes as private"},
		{ID: SetIssuesPrivate, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Set any issue as private"},
		{ID: SetOwnIssuesPrivate, Module: "issue_tracking", DependsOn: []string{ViewIssues}, Description: "Set own issues as private"},

		{ID: LogTime, Module: "time_tracking", Description: "Log spent time"},
		{ID: ViewTimeEntries, Module: "time_tracking", ReadOnly: true, Description: "View spent time"},

		{ID: ViewDocuments, Module: "documents", ReadOnly: true, Description: "View documents"},
		{ID: ViewWikiPages, Module: "wiki", ReadOnly: true, Description: "View wiki pages"},
		{ID: ViewFiles, Module: "files", ReadOnly: true, Description: "View project files"},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
