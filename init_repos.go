// Repository container construction. Keeps main.go's wire-up readable:
// one struct instead of a dozen loose variables.
package main

import (
	"database/sql"

	"github.com/remus-chat/remus-node/repository"
)

// Repositories holds every repository instance.
type Repositories struct {
	Profile repository.ProfileRepository
	Guild   repository.GuildRepository
	Meta    repository.MetaRepository
	Role    repository.RoleRepository
	Member  repository.MemberRepository
	Channel repository.ChannelRepository
	Message repository.MessageRepository
	Upload  repository.UploadRepository
	Ban     repository.BanRepository
	Audit   repository.AuditRepository
	Purge   repository.PurgeRepository
}

func initRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Profile: repository.NewSQLiteProfileRepo(db),
		Guild:   repository.NewSQLiteGuildRepo(db),
		Meta:    repository.NewSQLiteMetaRepo(db),
		Role:    repository.NewSQLiteRoleRepo(db),
		Member:  repository.NewSQLiteMemberRepo(db),
		Channel: repository.NewSQLiteChannelRepo(db),
		Message: repository.NewSQLiteMessageRepo(db),
		Upload:  repository.NewSQLiteUploadRepo(db),
		Ban:     repository.NewSQLiteBanRepo(db),
		Audit:   repository.NewSQLiteAuditRepo(db),
		Purge:   repository.NewSQLitePurgeRepo(db),
	}
}
