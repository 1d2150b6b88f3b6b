// perchbot is a minimal example bot: it logs in, publishes one post
// (optionally with an attached media file), and logs out.
//
// Usage:
//
//	perchbot [-a baseURL] [-p project] [--env-file bot.env] \
//	    -t "headline" -m "markdown body" [-file path/to/media]
//
// Credentials come from PERCH_EMAIL / PERCH_PASSWORD (or the .env file);
// if the password is absent, perchbot prompts for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/perchworks/perch/internal/client/api"
	"github.com/perchworks/perch/internal/client/config"
	"github.com/perchworks/perch/internal/client/models"
	"github.com/perchworks/perch/internal/flagx"
	"github.com/perchworks/perch/internal/logging"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	cfg := config.LoadConfig()

	args := flagx.FilterArgs(os.Args[1:], []string{"-t", "-m", "-file", "-adult"})
	fs := flag.NewFlagSet("perchbot", flag.ExitOnError)
	headline := fs.String("t", "", "post headline")
	markdown := fs.String("m", "", "post markdown body")
	file := fs.String("file", "", "path of a media file to attach")
	adult := fs.Bool("adult", false, "mark the post as adult content")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if cfg.Project == "" {
		return fmt.Errorf("no project specified (use -p or PERCH_PROJECT)")
	}
	if cfg.Email == "" {
		return fmt.Errorf("no account email specified (use PERCH_EMAIL)")
	}

	password := cfg.Password
	if password == "" {
		fmt.Print("Enter password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = string(pw)
	}

	client, err := api.NewClient(api.Config{
		BaseURL:      cfg.BaseURL,
		Logger:       logging.NewDefault(),
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	session, err := client.Login(ctx, cfg.Email, password)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Logout(ctx); err != nil {
			log.Printf("logout: %v", err)
		}
	}()

	post := &models.Post{
		Headline:     *headline,
		Markdown:     *markdown,
		AdultContent: *adult,
	}
	if *file != "" {
		att, err := models.NewAttachmentFromFile(*file)
		if err != nil {
			return err
		}
		post.Attachments = append(post.Attachments, att)
	}

	id, err := session.CreatePost(ctx, cfg.Project, post)
	if err != nil {
		return err
	}
	fmt.Printf("posted: %s\n", id)

	for _, att := range post.Attachments {
		if att.Status() == models.ProcessingPending {
			fmt.Printf("attachment %s is still processing server-side\n", att.ID())
		}
	}
	return nil
}
