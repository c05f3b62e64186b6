package main

import (
	"github.com/MrEthical07/multiauth/directory/memory"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/resolver"
)

type demoUser struct {
	id       string
	email    string
	password string
}

var demoUsers = []demoUser{
	{id: "7f1c2d3e-0000-4000-8000-000000000001", email: "riya@hillschool.test", password: "riya-demo-pass"},
	{id: "7f1c2d3e-0000-4000-8000-000000000002", email: "meera@family.test", password: "meera-demo-pass"},
}

const demoTenant = "hill-school"

// seedDirectory returns a directory with a student and her parent. The
// parent has no profile role yet and is found through the parents table.
func seedDirectory() *memory.Directory {
	student, parent := demoUsers[0], demoUsers[1]

	dir := memory.New()
	dir.PutTenant(resolver.Tenant{ID: demoTenant, Name: "Hill School", Code: "HILL", Status: resolver.TenantActive})

	dir.PutProfile(resolver.Profile{
		ID:       student.id,
		Email:    student.email,
		FullName: "Riya Shah",
		Role:     identity.RoleStudent,
		TenantID: demoTenant,
		Status:   resolver.ProfileActive,
	})
	dir.PutStudent(memory.Student{
		ID:          "stu-1001",
		TenantID:    demoTenant,
		Email:       student.email,
		FullName:    "Riya Shah",
		ParentEmail: parent.email,
	})
	dir.PutAttributes(student.id, identity.Attributes{StudentID: "stu-1001", ClassName: "7", Section: "B", AcademicYear: "2026-27"})

	dir.PutProfile(resolver.Profile{ID: parent.id, Email: parent.email, FullName: "Meera Shah", Status: resolver.ProfileActive})
	dir.PutMembership(resolver.SourceParent, resolver.Membership{RecordID: parent.id, TenantID: demoTenant, Name: "Meera Shah"}, parent.id, parent.email)

	return dir
}
