package casedb

import (
	"encoding/hex"
	"time"

	"github.com/coach-dss/coach/internal/rdf"
)

const (
	rdfType     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// CaseIRI names a case in exported documents.
func CaseIRI(caseID string) rdf.Term {
	return rdf.Local("case/" + caseID)
}

// PropertyIRI names a case property predicate.
func PropertyIRI(name string) rdf.Term {
	return rdf.Local("property/" + name)
}

// Triples describes a case as RDF statements, in a stable order.
func Triples(info CaseInfo) []rdf.Triple {
	subject := CaseIRI(info.ID)
	triples := []rdf.Triple{
		{Subject: subject, Predicate: rdf.NewIRI(rdfType), Object: rdf.Local("Case")},
		{Subject: subject, Predicate: rdf.Local("name"), Object: rdf.NewLiteral(info.Name)},
		{Subject: subject, Predicate: rdf.Local("description"), Object: rdf.NewLiteral(info.Description)},
		{Subject: subject, Predicate: rdf.Local("created"), Object: rdf.Term{
			Kind:     rdf.Literal,
			Value:    info.CreatedAt.UTC().Format(time.RFC3339),
			Datatype: xsdDateTime,
		}},
	}

	for _, sh := range info.Stakeholders {
		node := StakeholderNode(sh.UserID)
		triples = append(triples,
			rdf.Triple{Subject: subject, Predicate: rdf.Local("stakeholder"), Object: node},
			rdf.Triple{Subject: node, Predicate: rdf.Local("user"), Object: rdf.NewLiteral(sh.UserID)},
			rdf.Triple{Subject: node, Predicate: rdf.Local("role"), Object: rdf.NewLiteral(sh.Role)},
		)
	}

	for _, alt := range info.Alternatives {
		node := rdf.Local("alternative/" + alt.ID)
		triples = append(triples,
			rdf.Triple{Subject: subject, Predicate: rdf.Local("alternative"), Object: node},
			rdf.Triple{Subject: node, Predicate: rdf.NewIRI(rdfType), Object: rdf.Local("Alternative")},
			rdf.Triple{Subject: node, Predicate: rdf.Local("title"), Object: rdf.NewLiteral(alt.Title)},
		)
	}

	for name, value := range info.Properties {
		triples = append(triples, rdf.Triple{Subject: subject, Predicate: PropertyIRI(name), Object: rdf.NewLiteral(value)})
	}

	rdf.Sort(triples)
	return triples
}

// StakeholderNode is the blank node of a stakeholder in an exported case.
// The label hex-encodes the user id so distinct users never share a node.
func StakeholderNode(userID string) rdf.Term {
	return rdf.NewBlank("stakeholder_" + hex.EncodeToString([]byte(userID)))
}
