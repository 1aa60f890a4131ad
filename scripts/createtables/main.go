package main

import (
	"log"
	"os"
	"strings"

	"github.com/gocql/gocql"
)

// Schema bootstrap for local development. Production schema changes
// belong in a migration tool.
func main() {
	hostsStr := os.Getenv("SCYLLA_HOSTS")
	if hostsStr == "" {
		hostsStr = "localhost:9042"
	}
	hosts := strings.Split(hostsStr, ",")

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Consistency = gocql.Quorum
	sysSession, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}

	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatal(err)
	}
	sysSession.Close()

	cluster.Keyspace = "chat"
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	// Snowflake ids cluster ascending so queries come back in append order.
	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		conversation_key text,
		id bigint,
		sender_id text,
		receiver_id text,
		body text,
		attachment_url text,
		attachment_mime text,
		created_at timestamp,
		PRIMARY KEY (conversation_key, id)
	) WITH CLUSTERING ORDER BY (id ASC)`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS user_conversations (
		party_id text,
		other_party_id text,
		last_updated timestamp,
		PRIMARY KEY (party_id, other_party_id)
	)`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Tables created successfully")
}
