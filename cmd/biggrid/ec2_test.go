// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

type fakeEC2 struct {
	ec2iface.EC2API

	groups     []*ec2.SecurityGroup
	vpcs       []*ec2.Vpc
	created    []string
	authorized []*ec2.IpPermission
	tags       []*ec2.Tag
}

func (f *fakeEC2) DescribeSecurityGroups(in *ec2.DescribeSecurityGroupsInput) (*ec2.DescribeSecurityGroupsOutput, error) {
	name := aws.StringValue(in.Filters[0].Values[0])
	out := new(ec2.DescribeSecurityGroupsOutput)
	for _, g := range f.groups {
		if aws.StringValue(g.GroupName) == name {
			out.SecurityGroups = append(out.SecurityGroups, g)
		}
	}
	return out, nil
}

func (f *fakeEC2) DescribeVpcs(*ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) CreateSecurityGroup(in *ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error) {
	f.created = append(f.created, aws.StringValue(in.GroupName))
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String("sg-new")}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(in *ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.authorized = append(f.authorized, in.IpPermissions...)
	return new(ec2.AuthorizeSecurityGroupIngressOutput), nil
}

func (f *fakeEC2) CreateTags(in *ec2.CreateTagsInput) (*ec2.CreateTagsOutput, error) {
	f.tags = append(f.tags, in.Tags...)
	return new(ec2.CreateTagsOutput), nil
}

func TestSetupSecurityGroupExisting(t *testing.T) {
	svc := &fakeEC2{groups: []*ec2.SecurityGroup{{GroupName: aws.String("biggrid"), GroupId: aws.String("sg-1")}}}
	id, err := setupSecurityGroup(svc, "biggrid")
	assert.NoError(t, err)
	assert.EQ(t, id, "sg-1")
	assert.EQ(t, len(svc.created), 0)
}

func TestSetupSecurityGroupCreate(t *testing.T) {
	svc := &fakeEC2{vpcs: []*ec2.Vpc{{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("172.31.0.0/16")}}}
	id, err := setupSecurityGroup(svc, "grid")
	assert.NoError(t, err)
	assert.EQ(t, id, "sg-new")
	assert.EQ(t, svc.created, []string{"grid"})
	if got, want := len(svc.authorized), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Rank to rank traffic is allowed within the VPC.
	assert.EQ(t, aws.StringValue(svc.authorized[0].IpRanges[0].CidrIp), "172.31.0.0/16")
	var tagged bool
	for _, tag := range svc.tags {
		if aws.StringValue(tag.Key) == securityGroupTag {
			tagged = true
		}
	}
	if !tagged {
		t.Error("security group not tagged")
	}
}

func TestSetupSecurityGroupVPC(t *testing.T) {
	for _, c := range []struct {
		vpcs []*ec2.Vpc
		kind errors.Kind
	}{
		{nil, errors.NotExist},
		{[]*ec2.Vpc{{VpcId: aws.String("a")}, {VpcId: aws.String("b")}}, errors.Precondition},
	} {
		_, err := setupSecurityGroup(&fakeEC2{vpcs: c.vpcs}, "biggrid")
		if !errors.Is(c.kind, err) {
			t.Errorf("%d vpcs: got %v, want %v", len(c.vpcs), err, c.kind)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "sub", "config")
	profile, err := readProfile(path)
	assert.NoError(t, err)
	assert.NoError(t, profile.Set("biggrid.parallelism", "8"))
	want, ok := profile.Get("biggrid.parallelism")
	if !ok {
		t.Fatal("parallelism not set")
	}
	assert.NoError(t, writeProfile(path, profile))
	profile, err = readProfile(path)
	assert.NoError(t, err)
	got, ok := profile.Get("biggrid.parallelism")
	if !ok {
		t.Fatal("parallelism not read back")
	}
	assert.EQ(t, got, want)
}
