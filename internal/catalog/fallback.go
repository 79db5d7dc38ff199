package catalog

import (
	"strconv"

	"github.com/foliodesk/folio/internal/model"
)

const (
	placeholderImage = "/placeholder.svg"
	placeholderLink  = "#"
)

type placeholder struct {
	title       string
	description string
	tags        []string
}

var placeholders = []placeholder{
	{
		title:       "SaaS Dashboard",
		description: "A comprehensive analytics dashboard with real-time data visualization and user management.",
		tags:        []string{"React", "TypeScript", "Tailwind", "Chart.js"},
	},
	{
		title:       "E-Commerce Platform",
		description: "Full-stack e-commerce solution with payment integration and inventory management.",
		tags:        []string{"Next.js", "Node.js", "PostgreSQL", "Stripe"},
	},
	{
		title:       "Portfolio Website",
		description: "Modern portfolio website with smooth animations and glassmorphism design.",
		tags:        []string{"React", "Framer Motion", "Tailwind CSS"},
	},
	{
		title:       "Task Management App",
		description: "Collaborative project management tool with real-time updates and team features.",
		tags:        []string{"React", "Firebase", "TypeScript", "Zustand"},
	},
	{
		title:       "AI Content Generator",
		description: "AI-powered content creation tool leveraging GPT for marketing and blogging.",
		tags:        []string{"Next.js", "OpenAI", "Prisma", "tRPC"},
	},
	{
		title:       "Fitness Tracking App",
		description: "Mobile-first fitness application with workout tracking and progress analytics.",
		tags:        []string{"React Native", "Node.js", "MongoDB"},
	},
}

// Fallback returns a fresh copy of the placeholder projects, ids "1" to "6".
func Fallback() []model.Project {
	out := make([]model.Project, len(placeholders))
	for i, p := range placeholders {
		img, live, src := placeholderImage, placeholderLink, placeholderLink
		out[i] = model.Project{
			ID:          strconv.Itoa(i + 1),
			Title:       p.title,
			Description: p.description,
			Tags:        append(model.Tags(nil), p.tags...),
			ImageURL:    &img,
			LiveURL:     &live,
			GithubURL:   &src,
		}
	}
	return out
}
