// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/biggrid/gridconfig"

	// We bring these in so we can show the user all the defaults when
	// writing the profile.
	_ "github.com/grailbio/base/config/aws"
	_ "github.com/grailbio/biggrid/exec"
	_ "github.com/grailbio/bigmachine/ec2system"
)

// securityGroupTag marks security groups created by setup-ec2.
const securityGroupTag = "biggrid-sg"

func setupEC2Usage(flags *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `usage: biggrid setup-ec2 [-securitygroup name] [-instance type]

Command setup-ec2 sets up a security group so that biggrid jobs can
run on AWS EC2, one rank per instance. Once complete, the resulting
configuration is written to the biggrid configuration file at `, gridconfig.Path, `.
If a configuration file already exists, then it is modified in place.

If a security group with the given name already exists, no new group
is created, but the configuration is modified to include that
security group.

The security group is set up with the following rules:

	allowed: all traffic within the default VPC (rank to rank messages)
	allowed: all outbound
	allowed: inbound SSH connections
	allowed: inbound HTTPS connections (the bigmachine driver)

The flags are:
`)
	flags.PrintDefaults()
	os.Exit(2)
}

func setupEC2Cmd(args []string) {
	var (
		flags         = flag.NewFlagSet("biggrid setup-ec2", flag.ExitOnError)
		securityGroup = flags.String("securitygroup", "biggrid", "name of the security group to set up")
		instance      = flags.String("instance", "c5.2xlarge", "EC2 instance type of each rank")
	)
	flags.Usage = func() { setupEC2Usage(flags) }
	must.Nil(flags.Parse(args))
	if flags.NArg() != 0 {
		flags.Usage()
	}

	profile, err := readProfile(gridconfig.Path)
	must.Nil(err)
	if region, ok := profile.Get("aws/env.region"); ok && len(region) > 0 {
		must.Nil(profile.Set("bigmachine/ec2system.default-region", strings.Trim(region, `"`)))
	}
	if v, ok := profile.Get("bigmachine/ec2system.security-group"); ok && v != `""` {
		log.Print("ec2 security group ", v, " already configured")
	} else {
		sess, err := session.NewSession()
		must.Nil(err, "setting up AWS session")
		ident, err := setupSecurityGroup(ec2.New(sess), *securityGroup)
		must.Nil(err, "setting up security group")
		must.Nil(profile.Set("bigmachine/ec2system.security-group", ident))
		log.Print("set up new security group ", ident)
	}
	must.Nil(profile.Set("biggrid.system", "bigmachine/ec2system"))
	must.Nil(profile.Set("bigmachine/ec2system.instance", *instance))
	must.Nil(writeProfile(gridconfig.Path, profile))
	log.Print("wrote configuration to ", gridconfig.Path)
}

// readProfile reads the profile at path. A missing file yields an
// empty profile.
func readProfile(path string) (*config.Profile, error) {
	profile := config.New()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return profile, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := profile.Parse(f); err != nil {
		return nil, errors.E(errors.Invalid, "parsing profile", path, err)
	}
	return profile, nil
}

// writeProfile atomically replaces the profile at path.
func writeProfile(path string, profile *config.Profile) error {
	var buf bytes.Buffer
	if err := profile.PrintTo(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return err
	}
	tmp := path + ".setup-ec2"
	if err := os.WriteFile(tmp, buf.Bytes(), 0666); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// setupSecurityGroup returns the ID of the named security group,
// creating it in the default VPC if it does not exist.
func setupSecurityGroup(svc ec2iface.EC2API, name string) (string, error) {
	describeResp, err := svc.DescribeSecurityGroups(&ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("group-name"),
			Values: []*string{aws.String(name)},
		}},
	})
	if err != nil {
		return "", errors.E(errors.Unavailable, "querying security group", name, err)
	}
	if len(describeResp.SecurityGroups) > 0 {
		id := aws.StringValue(describeResp.SecurityGroups[0].GroupId)
		log.Printf("found existing biggrid security group %s", id)
		return id, nil
	}
	log.Print("no existing biggrid security group found; creating new")
	vpcResp, err := svc.DescribeVpcs(&ec2.DescribeVpcsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("isDefault"),
			Values: []*string{aws.String("true")},
		}},
	})
	if err != nil {
		return "", errors.E(errors.Unavailable, "retrieving default VPC", err)
	}
	switch len(vpcResp.Vpcs) {
	case 0:
		return "", errors.E(errors.NotExist,
			"AWS account does not have a default VPC and requires manual setup.\n"+
				"See https://docs.aws.amazon.com/vpc/latest/userguide/default-vpc.html#create-default-vpc")
	case 1:
	default:
		return "", errors.E(errors.Precondition, "AWS account has multiple default VPCs; needs manual setup")
	}
	vpc := vpcResp.Vpcs[0]
	log.Printf("found default VPC %s", aws.StringValue(vpc.VpcId))
	resp, err := svc.CreateSecurityGroup(&ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("security group automatically created by biggrid setup-ec2"),
		VpcId:       vpc.VpcId,
	})
	if err != nil {
		return "", errors.E("creating security group", name, err)
	}
	id := aws.StringValue(resp.GroupId)
	log.Printf("authorizing ingress traffic for security group %s", id)
	_, err = svc.AuthorizeSecurityGroupIngress(&ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: resp.GroupId,
		IpPermissions: []*ec2.IpPermission{
			// Ranks exchange halos and results directly.
			{
				IpProtocol: aws.String("-1"),
				IpRanges:   []*ec2.IpRange{{CidrIp: vpc.CidrBlock}},
				FromPort:   aws.Int64(0),
				ToPort:     aws.Int64(0),
			},
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(22),
				ToPort:     aws.Int64(22),
			},
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(443),
				ToPort:     aws.Int64(443),
			},
		},
	})
	if err != nil {
		return "", errors.E("authorizing ingress for security group", id, err)
	}
	_, err = svc.CreateTags(&ec2.CreateTagsInput{
		Resources: []*string{aws.String(id)},
		Tags: []*ec2.Tag{
			{Key: aws.String(securityGroupTag), Value: aws.String("true")},
			{Key: aws.String("Name"), Value: aws.String(name)},
		},
	})
	if err != nil {
		log.Printf("tag security group %s: %v", id, err)
	}
	log.Printf("created security group %v", id)
	return id, nil
}
