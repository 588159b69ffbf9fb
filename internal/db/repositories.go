package db

// Repositories provides access to all database repositories
type Repositories struct {
	Channels   *ChannelRepository
	Users      *UserRepository
	Messages   *MessageRepository
	Complaints *ComplaintRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Channels:   NewChannelRepository(db),
		Users:      NewUserRepository(db),
		Messages:   NewMessageRepository(db),
		Complaints: NewComplaintRepository(db),
	}
}
