package imapclient_test

import (
	"bytes"
	"context"
	"log"
	"os"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/imapclient"
)

func ExamplePool() {
	ctx := context.Background()
	p := imapclient.NewPool(imapclient.Config{
		Host: "mail.example.org",
		TLS:  true,
		Credentials: imapclient.Credentials{
			Username: "root",
			Password: "asdf",
		},
	}, nil)
	defer p.Close()

	folders, err := p.ListFolders(ctx, false)
	if err != nil {
		log.Fatalf("failed to list folders: %v", err)
	}
	log.Printf("Found %v folders", len(folders))
	for _, f := range folders {
		log.Printf(" - %v", f.Name())
	}

	inbox := p.Folder(kamel.NewFolderDescriptor("INBOX", "/", nil))
	defer inbox.Close()

	msgs, err := inbox.Fetch(ctx, imapclient.FetchRange(1, 0))
	if err != nil {
		log.Fatalf("failed to fetch INBOX: %v", err)
	}
	for _, msg := range msgs {
		log.Printf("%v", msg)
	}
}

func ExampleMessage_Resolve() {
	var inbox *imapclient.Folder
	ctx := context.Background()

	// fetch flags first, the envelope only for unread messages
	msgs, err := inbox.Fetch(ctx, &imapclient.FetchRequest{Flags: true, UID: true})
	if err != nil {
		log.Fatalf("failed to fetch flags: %v", err)
	}
	for _, msg := range msgs {
		if msg.Flags.Value().Has(kamel.FlagSeen) {
			continue
		}
		if err := msg.Resolve(ctx); err != nil {
			log.Fatalf("failed to resolve message: %v", err)
		}
		if subject := msg.Subject.Value(); subject != nil {
			log.Printf("unread: %v", *subject)
		}
	}
}

func ExampleMessage_Content() {
	var msg *imapclient.Message
	ctx := context.Background()

	var html bytes.Buffer
	err := msg.Content(ctx, &imapclient.ContentSinks{
		Text:         os.Stdout,
		HTML:         &html,
		Decode:       true,
		TextFromHTML: true,
	})
	if err != nil {
		log.Fatalf("failed to fetch content: %v", err)
	}
}

func ExampleIdleFolder() {
	var inbox *imapclient.Folder
	ctx := context.Background()

	idle := inbox.IdleFolder()
	defer idle.Close()

	var listeners imapclient.IdleListeners
	listeners.OnNewMessage(func(seqNum uint32) {
		log.Printf("new message %v", seqNum)
	})
	listeners.OnRemovedMessage(func(seqNum uint32) {
		log.Printf("message %v removed", seqNum)
	})
	if err := idle.Idle(ctx, &listeners); err != nil {
		log.Fatalf("IDLE failed: %v", err)
	}
}
